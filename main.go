package main

import (
	"github.com/zephyrpay/relayer/cmd"
)

func main() {
	cmd.Execute()
}
