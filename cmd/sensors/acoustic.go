package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensorhub/acoustic"
	"github.com/mklimuk/sensorhub/cmd/sensors/console"
	"github.com/mklimuk/sensorhub/config"
)

var acousticCmd = cli.Command{
	Name:  "acoustic",
	Usage: "serial acoustic node",
	Subcommands: cli.Commands{
		&acousticReadCmd,
	},
}

var acousticReadCmd = cli.Command{
	Name:  "read",
	Usage: "stream acoustic samples",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "serial port",
			Value:   "/dev/ttyS1",
		},
		&cli.IntFlag{Name: "baud", Value: config.DefaultBaud},
		odrFlag,
		countFlag,
		timeoutFlag,
	},
	Action: func(c *cli.Context) error {
		b, s, err := openSingle(config.Sensor{
			Name:      "acoustic",
			Type:      config.TypeAcoustic,
			Transport: config.TransportSerial,
			Port:      c.String("port"),
			Baud:      c.Int("baud"),
			ODR:       uint32(c.Uint("odr")),
		})
		if err != nil {
			return err
		}
		defer closeBoard(c.Context, b)
		err = initialize(c.Context, s)
		if err != nil {
			return err
		}
		printODR(c.Context, s)
		return stream(c.Context, s, c.Int("count"), c.Duration("timeout"), func(data []byte) {
			if len(data) < acoustic.SampleSize {
				return
			}
			fmt.Printf("level=%s\n", console.White(fmt.Sprintf("%.2f", acoustic.DecodeSample(data))))
		})
	},
}
