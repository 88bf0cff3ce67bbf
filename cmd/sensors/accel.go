package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensorhub"
	"github.com/mklimuk/sensorhub/accel"
	"github.com/mklimuk/sensorhub/cmd/sensors/console"
	"github.com/mklimuk/sensorhub/config"
)

var accelFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "transport",
		Aliases: []string{"t"},
		Usage:   "spi, gobot, i2c or mcp2221",
		Value:   string(config.TransportSPI),
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "periph spi port or i2c bus name",
		Value:   "SPI0.0",
	},
	&cli.IntFlag{Name: "bus", Usage: "gobot spi bus number"},
	&cli.IntFlag{Name: "chip", Usage: "gobot spi chip select"},
	&cli.Int64Flag{Name: "speed", Usage: "bus clock in Hz"},
	&cli.UintFlag{Name: "address", Usage: "i2c address", Value: accel.KX122AddressLow},
	&cli.StringFlag{
		Name:  "drdy",
		Usage: "data ready pin: host pin name, or GP index for mcp2221",
		Value: "GPIO17",
	},
	&cli.IntFlag{Name: "range", Usage: "full scale in g (2, 4 or 8)", Value: config.DefaultRange},
	odrFlag,
}

func kx122FromFlags(c *cli.Context) config.Sensor {
	return config.Sensor{
		Name:      "kx122",
		Type:      config.TypeKX122,
		Transport: config.Transport(c.String("transport")),
		Device:    c.String("device"),
		Bus:       c.Int("bus"),
		Chip:      c.Int("chip"),
		SpeedHz:   c.Int64("speed"),
		Address:   byte(c.Uint("address")),
		DRDYPin:   c.String("drdy"),
		ODR:       uint32(c.Uint("odr")),
		Range:     c.Int("range"),
	}
}

var accelCmd = cli.Command{
	Name:  "accel",
	Usage: "KX122 accelerometer",
	Subcommands: cli.Commands{
		&accelProbeCmd,
		&accelSelfTestCmd,
		&accelReadCmd,
	},
}

var accelProbeCmd = cli.Command{
	Name:  "probe",
	Usage: "check identity and configure the sensor",
	Flags: accelFlags,
	Action: func(c *cli.Context) error {
		b, s, err := openSingle(kx122FromFlags(c))
		if err != nil {
			return err
		}
		defer closeBoard(c.Context, b)
		err = initialize(c.Context, s)
		if err != nil {
			return err
		}
		console.Infof("%s %s", s.Name(), console.Green("found"))
		printODR(c.Context, s)
		return nil
	},
}

var accelSelfTestCmd = cli.Command{
	Name:  "selftest",
	Usage: "run the command test response check",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	}, accelFlags...),
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			answer, err := console.YesOrNo("self-test disables the data ready interrupt while it runs; continue?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				return nil
			}
		}
		b, s, err := openSingle(kx122FromFlags(c))
		if err != nil {
			return err
		}
		defer closeBoard(c.Context, b)
		err = initialize(c.Context, s)
		if err != nil {
			return err
		}
		code, err := s.Control(c.Context, sensorhub.CtrlSelfTest, 0)
		if code != sensorhub.SelfTestOK {
			return console.Exit(3, "self-test failed with code %d: %s", code, console.Red(err))
		}
		console.Infof("self-test %s", console.Green("passed"))
		return nil
	},
}

var accelReadCmd = cli.Command{
	Name:  "read",
	Usage: "stream acceleration samples",
	Flags: append([]cli.Flag{countFlag, timeoutFlag}, accelFlags...),
	Action: func(c *cli.Context) error {
		sc := kx122FromFlags(c)
		b, s, err := openSingle(sc)
		if err != nil {
			return err
		}
		defer closeBoard(c.Context, b)
		err = initialize(c.Context, s)
		if err != nil {
			return err
		}
		printODR(c.Context, s)
		r := accel.Range(sc.Range)
		return stream(c.Context, s, c.Int("count"), c.Duration("timeout"), func(data []byte) {
			if len(data) < 6 {
				return
			}
			axes := accel.DecodeAxes(data)
			g := axes.G(r)
			fmt.Printf("x=%s y=%s z=%s  raw=%d,%d,%d\n",
				console.White(fmt.Sprintf("%+.4fg", g[0])),
				console.White(fmt.Sprintf("%+.4fg", g[1])),
				console.White(fmt.Sprintf("%+.4fg", g[2])),
				axes.X, axes.Y, axes.Z)
		})
	},
}
