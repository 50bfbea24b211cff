package main

import "typingschool/identity/cmd/schoolctl/cmd"

func main() {
	cmd.Execute()
}
