package main

import (
	"context"

	"github.com/redpanda-data/benthos/v4/public/service"
)

func init() {
	err := service.RegisterProcessor(
		"binread",
		binreadProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newBinreadProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

func main() {
	service.RunCLI(context.Background())
}
