package ports

import "context"

// FirmwareBuilder compiles firmware for an environment. On failure the
// summary carries a best-effort extract of the tool's error output.
type FirmwareBuilder interface {
	Build(ctx context.Context, envName string) (ok bool, summary string)
}

// FirmwareFlasher uploads previously built firmware. Flash targets a
// local serial port; UploadOTA targets a network address.
type FirmwareFlasher interface {
	Flash(ctx context.Context, target, envName string) bool
	UploadOTA(ctx context.Context, ip, envName string) bool
}
