// Package sensormux provides a minimal sensor device node that multiplexes
// reads of several Linux sensor attributes (hwmon temperature, IIO pressure)
// through one logical channel.
//
// The protocol is the one a character device read with `cat` in a shell loop
// expects:
//   - a write of "temp" or "pres" selects the source (only the first four
//     bytes matter, so "temperature\n" works too)
//   - the next read returns the current value of the selected source
//   - the read after that returns end-of-stream, until the next write
//
// Features:
//   - Raw syscall-based attribute reads, the source is closed after every read
//   - One shared selection and read cursor, serialized by a single lock
//   - Channel implements io.ReadWriter, so bufio and io.ReadAll just work
//   - Line poller with backoff for sources that are temporarily unavailable
//   - Device nodes published through a Registrar (see package httpdev)
//
// Example usage:
//
//	reg, err := sensormux.NewRegistry(sensormux.Locators{
//	    Temperature: "/sys/class/hwmon/hwmon0/temp1_input",
//	    Pressure:    "/sys/bus/iio/devices/iio:device0/in_pressure_input",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ch, err := sensormux.NewChannel(reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ch.Write([]byte("temp"))
//	value, err := io.ReadAll(ch) // "21500\n"
//	if err != nil {
//	    log.Println("Read error:", err)
//	}
//
// Reading before any source was selected fails with ErrNotConfigured.
package sensormux
