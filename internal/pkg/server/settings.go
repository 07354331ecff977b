package server

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// LocalAddresses returns the non-loopback IPv4 addresses of this host.
func LocalAddresses() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(addrs, func(a net.Addr, _ int) (string, bool) {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			return "", false
		}
		return ipnet.IP.String(), true
	}), nil
}

// settingsJS tells the browser UI where the hub is reachable.
func settingsJS(addresses []string, port int) http.HandlerFunc {
	quoted := lo.Map(addresses, func(a string, _ int) string { return strconv.Quote(a) })
	return func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		fmt.Fprintf(&b, "const addresses = [%s];\n", strings.Join(quoted, ", "))
		fmt.Fprintf(&b, "const port = %d;\n", port)
		fmt.Fprintf(&b, "const host = %s;\n", strconv.Quote(r.Host))

		w.Header().Set("Content-Type", "text/javascript")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(b.String()))
	}
}
