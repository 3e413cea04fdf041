// Package classify labels detected text regions as subtitle overlay or
// legitimate on-screen content. Rules are data, not code branches: an ordered
// rule list is built from a versioned TOML RuleSet, evaluated first match
// wins, so individual heuristics stay independently testable and the set can
// be swapped without touching pipeline logic.
//
// Classification is a pure function of the region plus bounded recent
// history; nothing here looks ahead of the current frame.
package classify
