package main

import "bilirelay/cmd"

func main() {
	cmd.Execute()
}
