// Command edge-gate runs the HTTP edge gateway.
package main

import "github.com/Sentinel-Gate/edgegate/cmd/edge-gate/cmd"

func main() {
	cmd.Execute()
}
