package main

import (
	"fmt"
	"os"

	"github.com/kaytu-io/ai-concierge/services/concierge"
)

func main() {
	if err := concierge.LambdaCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
