package client

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePairs parses "1:2,2:3" into insertion requests.
func ParsePairs(s string) ([]InputLink, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("no pairs given")
	}

	var objects []InputLink
	for i, part := range strings.Split(s, ",") {
		from, to, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("pair %d: expected from:to, got %q", i, part)
		}
		fromID, err := strconv.ParseUint(strings.TrimSpace(from), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pair %d: invalid from_id: %w", i, err)
		}
		toID, err := strconv.ParseUint(strings.TrimSpace(to), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pair %d: invalid to_id: %w", i, err)
		}
		objects = append(objects, InputLink{FromID: fromID, ToID: toID})
	}
	return objects, nil
}
