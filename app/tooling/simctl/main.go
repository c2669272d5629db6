package main

import "github.com/ardanlabs/powsim/app/tooling/simctl/cmd"

func main() {
	cmd.Execute()
}
