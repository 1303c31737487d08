package main

import "marketplace-svc/cmd"

func main() {
	cmd.Execute()
}
