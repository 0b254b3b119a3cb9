// Package mqtt provides MQTT client connectivity for the RemoteEye relay.
//
// The relay uses MQTT as its push channel: when a device has no live
// WebSocket session, a wake ping or command notification is published to
// a per-device push topic that the phone's background service (or a
// FCM/APNs gateway) subscribes to.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for relay offline detection
//   - Connection health monitoring
//
// # Topics
//
//	{prefix}/push/{pushToken}   wake pings and command notifications
//	{prefix}/system/status      retained relay online/offline status
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Push tokens are opaque; anyone who knows one can read its topic, so
//     brokers should restrict subscriptions by ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Push.TopicPrefix)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Push(token)
//	err = client.Publish(topic, payload, 1, false)
package mqtt
