package ports

// Server is a long-running front end for the classifier
type Server interface {
	// Start starts serving in the background
	Start() error

	// Stop stops the server
	Stop() error
}
