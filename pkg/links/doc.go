// Package links defines doublets, the associative links stored by linkgate,
// and the contract a storage engine must satisfy to be served by the gateway.
//
// A doublet is a triple (index, source, target). Source and target may refer
// to other doublets, so sequences, sets and trees can all be encoded as links.
// Engines keep at most one doublet per (source, target) pair and assign
// indices densely starting at 1.
package links
