package link

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/mastercactapus/apawinder/plc"
	"github.com/pkg/errors"
)

// Serve answers tag requests read from rw using drv until rw returns an
// error. io.EOF is not reported.
func Serve(rw io.ReadWriter, drv plc.Driver) error {
	scan := bufio.NewScanner(rw)
	w := bufio.NewWriter(rw)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		w.WriteString(handle(drv, line))
		w.WriteByte('\n')
		if err := w.Flush(); err != nil {
			return errors.Wrap(err, "reply")
		}
	}
	return scan.Err()
}

func handle(drv plc.Driver, line string) string {
	fields := strings.Fields(line)
	switch fields[0] {
	case "hello":
		if err := drv.Initialize(); err != nil {
			return "error: " + err.Error()
		}
		return "ok"
	case "read":
		vals, err := drv.Read(fields[1:])
		if err != nil {
			return "error: " + err.Error()
		}
		parts := make([]string, len(vals)+1)
		parts[0] = "ok"
		for i, v := range vals {
			parts[i+1] = formatValue(v)
		}
		return strings.Join(parts, " ")
	case "write":
		if len(fields) != 4 {
			return "error: usage: write NAME TYPE VALUE"
		}
		typ, ok := plc.ParseType(fields[2])
		if !ok {
			return "error: unknown type " + fields[2]
		}
		v, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return "error: bad value " + fields[3]
		}
		if err = drv.Write(fields[1], typ, v); err != nil {
			return "error: " + err.Error()
		}
		return "ok"
	}
	return "error: unknown request " + fields[0]
}
