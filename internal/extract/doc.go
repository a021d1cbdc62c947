// Package extract renders remote pages through a browser Session and turns
// them into entity records. Each run walks an explicit state machine:
// Idle, Navigating, WaitingForContent, Extracting, optionally Paginating,
// and finally Done or Failed.
package extract
