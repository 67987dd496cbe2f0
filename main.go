// Command ycrawler archives new stories from a Hacker News style site.
package main

import "github.com/JakeFAU/ycrawler/cmd"

func main() {
	cmd.Execute()
}
