package main

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/edaniels/golog"
	"github.com/mastercactapus/apawinder/apa"
	"github.com/mastercactapus/apawinder/machine"
	"github.com/pkg/errors"
	"github.com/soniah/evaler"
)

// cmdServer accepts one command per line and answers each with one JSON
// value per line.
type cmdServer struct {
	w   Winder
	log golog.Logger

	mx    sync.Mutex
	conns map[net.Conn]struct{}
}

type cmdResponse struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func newCmdServer(w Winder, log golog.Logger) *cmdServer {
	return &cmdServer{w: w, log: log, conns: make(map[net.Conn]struct{})}
}

// Serve accepts connections until l is closed.
func (s *cmdServer) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			s.closeAll()
			return err
		}
		s.mx.Lock()
		s.conns[conn] = struct{}{}
		s.mx.Unlock()
		go s.handle(conn)
	}
}

func (s *cmdServer) closeAll() {
	s.mx.Lock()
	defer s.mx.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

func (s *cmdServer) handle(conn net.Conn) {
	defer func() {
		s.mx.Lock()
		delete(s.conns, conn)
		s.mx.Unlock()
		conn.Close()
	}()
	s.log.Infof("command client %s connected", conn.RemoteAddr())

	enc := json.NewEncoder(conn)
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var resp cmdResponse
		res, err := s.exec(line)
		if err != nil {
			s.log.Warnf("command %q: %v", line, err)
			resp.Error = err.Error()
		} else {
			resp.OK, resp.Result = true, res
		}
		if err = enc.Encode(resp); err != nil {
			s.log.Debugf("command client %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// number evaluates an arithmetic expression such as "10*2.5" or "-(3+4)".
func number(expr string) (float64, error) {
	r, err := evaler.Eval(expr)
	if err != nil {
		return 0, errors.Wrapf(err, "evaluate %q", expr)
	}
	return evaler.BigratToFloat(r), nil
}

func numbers(args []string, min, max int) ([]float64, error) {
	if len(args) < min || len(args) > max {
		if min == max {
			return nil, errors.Errorf("expected %d arguments", min)
		}
		return nil, errors.Errorf("expected %d to %d arguments", min, max)
	}
	res := make([]float64, max)
	for i, a := range args {
		v, err := number(a)
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

func (s *cmdServer) exec(line string) (interface{}, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(line, cmd))

	switch cmd {
	case "state":
		return s.w.Status(), nil
	case "start":
		return nil, s.w.Start()
	case "stop":
		s.w.Stop()
		return nil, nil
	case "ack":
		s.w.Acknowledge()
		return nil, nil
	case "jogXY":
		v, err := numbers(args, 2, 2)
		if err != nil {
			return nil, err
		}
		return nil, s.w.JogXY(v[0], v[1])
	case "jogZ":
		v, err := numbers(args, 1, 1)
		if err != nil {
			return nil, err
		}
		return nil, s.w.JogZ(v[0])
	case "seekXY":
		v, err := numbers(args, 2, 3)
		if err != nil {
			return nil, err
		}
		return nil, s.w.SeekXY(v[0], v[1], v[2])
	case "seekZ":
		v, err := numbers(args, 1, 2)
		if err != nil {
			return nil, err
		}
		return nil, s.w.SeekZ(v[0], v[1])
	case "head":
		v, err := numbers(args, 1, 1)
		if err != nil {
			return nil, err
		}
		return nil, s.w.SetHead(machine.HeadPosition(int(v[0])))
	case "gcode":
		if rest == "" {
			return nil, errors.New("expected a G-code line")
		}
		return nil, s.w.GCode(rest)
	case "calibrate":
		return nil, s.w.Calibrate(rest != "back")
	case "apa":
		return nil, s.w.OpenAPA(rest)
	case "recipe":
		return nil, s.w.LoadRecipe(rest)
	case "stage":
		st, err := apa.ParseStage(rest)
		if err != nil {
			return nil, err
		}
		return nil, s.w.SetStage(st)
	case "line":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return nil, errors.Wrap(err, "line")
		}
		return nil, s.w.SetLine(n)
	}
	return nil, errors.Errorf("unknown command %q", cmd)
}
