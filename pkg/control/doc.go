// Package control serves a running caller over HTTP.
//
// Events are posted by name; "sub:" prefixed names are wrapped for the
// submachine. The mode query parameter picks synchronous dispatch (the
// default, answered with the result and the resulting state), asynchronous
// queuing or a deferred event whose id can later be canceled:
//
//	c, _ := caller.New(m, caller.WithName("engine"))
//	h := control.New(c, control.WithGatherer(reg))
//	srv := httpserver.New(httpserver.WithAddr(":8080"))
//	_ = srv.Run(ctx, h.Router())
//
// Protocol errors such as a missing handler answer 422, a stopped caller 503.
package control
