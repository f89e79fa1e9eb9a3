package main

import "github.com/quillbooks/quillbooks/cmd/quillbooks/cmd"

func main() {
	cmd.Execute()
}
