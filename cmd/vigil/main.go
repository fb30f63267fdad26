// Vigil - declarative Centreon monitoring configuration
// Describe. Converge. Publish.
package main

func main() {
	Execute()
}
