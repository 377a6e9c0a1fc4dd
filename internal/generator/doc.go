// Package generator produces sample document photos with Google Gemini.
//
// Gemini picks one of a fixed set of document scenes, asks the image model for
// a realistic top-down photo, and returns the first inline image as a data URI
// ready to be added as a work item. Generation failures never touch the
// processing queue; callers surface them to the user directly.
package generator
