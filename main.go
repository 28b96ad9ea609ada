// Command citypop builds the city population spreadsheet.
package main

import "github.com/JakeFAU/citypop-crawler/cmd"

func main() {
	cmd.Execute()
}
