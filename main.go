package main

import "github.com/frahmantamala/travel-requests/cmd"

func main() {
	cmd.Execute()
}
