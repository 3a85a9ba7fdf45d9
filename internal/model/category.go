package model

// Category represents a budget category available for assignment.
type Category struct {
	ID        string
	Name      string
	GroupName string
}
