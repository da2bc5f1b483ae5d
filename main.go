// Command nexus crawls the web, indexes pages by term frequency and answers
// keyword queries.
package main

import "github.com/JakeFAU/nexus-search/cmd"

func main() {
	cmd.Execute()
}
