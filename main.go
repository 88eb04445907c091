// The main package for the findata executable.
package main

import (
	"github.com/somonox/findata-crawler/cmd"
)

func main() {
	cmd.Execute()
}
