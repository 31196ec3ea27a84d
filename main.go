package main

import "github.com/19karthik/document-migration/cmd"

func main() {
	cmd.Execute()
}
