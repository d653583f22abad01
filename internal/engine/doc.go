// Package engine contains the authoritative downed-state driver.
//
// ARCHITECTURAL RULE: only the tick thread mutates downed state. I/O
// goroutines Submit commands; Step drains them, then ticks every downed
// entity in id order. Incoming damage passes the Gate, whose verdict is
// acted on by the Manager.
package engine
