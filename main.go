package main

import "github.com/matheuskafuri/xscout/cmd"

func main() {
	cmd.Execute()
}
