// Package mqtt connects habsync to an MQTT broker, the bus over which
// classified entities are exposed to other home-automation consumers.
//
// Outbound, the entity publisher writes retained entity state, controller
// availability and a snapshot summary. Inbound, it subscribes to entity
// command topics and forwards them to openHAB.
//
//	openHAB ⇄ habsync ⇄ MQTT broker ⇄ consumers
//
// See Topics for the topic hierarchy.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllEntityCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        category, item, _ := client.Topics().ParseEntityCommand(topic)
//	        return handle(category, item, payload)
//	    })
//
// # Security Considerations
//
//   - Enable TLS (broker.tls) outside a trusted LAN
//   - Command topics drive real devices; restrict them with broker ACLs
package mqtt
