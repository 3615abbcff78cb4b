// Command findreplace applies ordered find and replace rules to files.
package main

import (
	"findreplace/cmd"
)

func main() {
	cmd.Execute()
}
