// Package channels provides the delivery adapters for the supported
// notification channels: transactional email through Postmark, SMS and push
// through HTTP gateways, and in-app delivery through a subscriber hub.
//
// Adapters share one contract: Initialize prepares the provider client and
// tolerates missing credentials (the adapter reports unhealthy instead of
// failing), Send performs exactly one delivery attempt, and SendBulk fans
// Send out with bounded concurrency collecting per-item outcomes. Retry
// scheduling lives in the dispatch queue, never inside an adapter.
//
// # Usage
//
//	registry := channels.NewRegistry()
//	_ = registry.Register(channels.NewEmailAdapter(emailCfg))
//	_ = registry.Register(channels.NewSMSAdapter(smsCfg))
//	_ = registry.Register(channels.NewPushAdapter(pushCfg))
//	_ = registry.Register(channels.NewInAppAdapter(hub))
//
//	if err := registry.InitializeAll(ctx); err != nil {
//		log.Warn("some channels unavailable", "error", err)
//	}
//
//	adapter, err := registry.Adapter(notification.ChannelEmail)
//	if err != nil {
//		return err
//	}
//	err = adapter.Send(ctx, channels.Request{
//		Recipient: "jordan@example.com",
//		Subject:   "Welcome aboard",
//		Message:   "Your account is ready.",
//	})
//
// StubAdapter substitutes for any channel in tests.
package channels
