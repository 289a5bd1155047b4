// meshsim simulates a swarm of BLE mesh discovery/clusterhead-election
// nodes over an in-memory radio model.
package main

func main() {
	Execute()
}
