package main

// Default limits for CLI commands.
const (
	DefaultListLimit = 50
	DefaultLogLimit  = 20
)

// Bulk deletes above this size ask for confirmation unless --force is given.
const confirmDeleteAbove = 10
