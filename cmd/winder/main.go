package main

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/calibration"
	"github.com/mastercactapus/apawinder/control"
	"github.com/mastercactapus/apawinder/executor"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/mastercactapus/apawinder/plc"
	"github.com/mastercactapus/apawinder/plc/link"
	"github.com/mastercactapus/apawinder/plc/sim"
	"github.com/mastercactapus/apawinder/vm"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

func main() {
	driver := flag.String("plc", "sim", "PLC driver to use: sim, serial or gateway.")
	port := flag.String("port", "/dev/ttyUSB0", "Serial port of the PLC tag bridge.")
	baud := flag.Int("baud", 115200, "Baud rate of the serial tag bridge.")
	gatewayURL := flag.String("gateway", "ws://plc-gateway:8989/ws", "Websocket URL of the PLC tag gateway.")
	addr := flag.String("addr", ":9091", "Address to bind the HTTP API to.")
	cmdAddr := flag.String("cmd", ":6626", "Address to bind the command server to (empty to disable).")
	dir := flag.String("dir", "./data", "Data directory to use.")
	machineFile := flag.String("machine", "machine.xml", "Machine calibration file, relative to the data directory.")
	tick := flag.Duration("tick", 100*time.Millisecond, "Control loop period.")
	flag.Parse()

	log := golog.NewDevelopmentLogger("winder")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	drv, closer, err := newDriver(ctx, *driver, *port, *baud, *gatewayURL, log.Named("plc"))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	cal, err := calibration.LoadMachine(filepath.Join(*dir, *machineFile))
	if err != nil {
		log.Fatalf("%+v", err)
	}

	reg := plc.NewRegistry(drv, log.Named("plc"))
	m := machine.New(reg, machine.DefaultConfig, log.Named("machine"))
	in := &vm.Interpreter{Machine: cal, HeadZ: machine.DefaultConfig.HeadZ}
	c := control.New(m, executor.New(m, in, log.Named("executor")), cal, log.Named("control"))
	p := control.NewProcess(c, *dir, log.Named("process"))

	a := newAPI(p, *dir, log.Named("api"))
	srv := &http.Server{Addr: *addr, Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Debugf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		a.ServeHTTP(w, req)
	})}

	var cmdListener net.Listener
	if *cmdAddr != "" {
		cmdListener, err = net.Listen("tcp", *cmdAddr)
		if err != nil {
			log.Fatalf("command server: %v", err)
		}
		go newCmdServer(p, log.Named("cmd")).Serve(cmdListener)
	}

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("http: %v", err)
			cancel()
		}
	}()
	log.Infof("listening on %s", *addr)

	run(ctx, c, a, *tick)

	log.Info("shutting down")
	c.Stop()
	c.Tick()
	shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	err = multierr.Combine(srv.Shutdown(shutdown), p.Close())
	if cmdListener != nil {
		err = multierr.Append(err, cmdListener.Close())
	}
	if closer != nil {
		err = multierr.Append(err, closer.Close())
	}
	a.Close()
	if err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

// run ticks the control loop and publishes the status until ctx is done.
func run(ctx context.Context, c *control.Control, a *api, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Tick()
			a.publish(c.Status())
		}
	}
}

func newDriver(ctx context.Context, kind, port string, baud int, url string, log golog.Logger) (plc.Driver, io.Closer, error) {
	switch kind {
	case "sim":
		s := sim.New(sim.DefaultConfig)
		go s.Run(ctx, 10*time.Millisecond)
		return s, nil, nil
	case "serial":
		d := link.NewSerialDriver(port, baud, log)
		return d, d, nil
	case "gateway":
		g := link.NewGateway(url, log)
		return g, g, nil
	}
	return nil, nil, errors.Errorf("unknown PLC driver %q", kind)
}
