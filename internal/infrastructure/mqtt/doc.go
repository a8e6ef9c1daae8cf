// Package mqtt provides optional MQTT connectivity for the home gateway.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Retained per-device presence mirrored from the directory
//
// # Topics
//
//	homegw/system/status     online/offline status, retained, also the LWT
//	homegw/device/{id}       presence of one device, retained
//	homegw/command/discover  any message triggers a discovery cycle
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is not on the local host (cfg.Broker.TLS=true)
//   - Credentials are validated against the broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	presence := mqtt.NewPresence(client)
//	directory.Subscribe(presence)
//	go presence.Run(ctx)
package mqtt
