package paths

// Topic segments of the rcbridge MQTT protocol. They form the contract between
// the bridge and the input publishers and BLE gateways on the broker.

// Inbound: publishers -> bridge
const (
	// Input carries press/release edges for one vehicle.
	// Payload: { "control": "forward", "edge": "press" }
	// Pattern: {root}/input/{vehicleID}
	Input = "input"
)

// Outbound: bridge -> gateway
const (
	// Link carries hub connection requests for one hardware address.
	// Payload: { "op": "connect" | "disconnect", "timeoutMs": ... }
	// Pattern: {root}/link/{address}
	Link = "link"

	// Motor carries actuator requests for the motors of one hub.
	// Payload: { "port": "A", "op": "start_power", "power": 100 }
	// Pattern: {root}/motor/{address}
	Motor = "motor"

	// Online reports bridge availability for one vehicle, retained.
	// Payload: { "online": true/false }
	// Pattern: {root}/online/{vehicleID}
	Online = "online"
)
