// Package vkms implements a headless virtual display pipeline.
//
// # Overview
//
// vkms emulates the scanout, composition and verification behavior of a
// display controller without any output device, so display-management
// software can be tested, fuzzed or run on machines without a monitor. A
// simulated vblank timer drives a composition worker that blends the active
// planes of the last committed state, computes a CRC of the visible frame for
// each elapsed frame, and optionally captures the frame into a writeback
// buffer.
//
// # Quick Start
//
//	dev, err := vkms.NewDevice()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	mode := dev.Mode()
//	fb, _ := framebuffer.New(mode.HDisplay, mode.VDisplay, framebuffer.FormatXRGB8888)
//	fb.Fill(0xff336699)
//
//	err = dev.Commit(&vkms.CommitRequest{
//	    Active: true,
//	    Planes: map[*vkms.Plane]vkms.PlaneConfig{
//	        dev.Primary(): {FB: fb, Src: fb.Bounds(), Dst: mode.Bounds()},
//	    },
//	})
//
//	out := dev.Output()
//	_ = out.SetCRCSource("auto")
//	entry, err := out.ReadCRC(ctx)
//
// # Architecture
//
// The package is organized into:
//   - Public API: Device, CommitRequest, Output, Plane, WritebackJob, Mode
//   - framebuffer: mapped, reference-counted pixel buffers
//   - Internal: blend (pixel blending), checksum (frame CRC), vblank (scanout
//     timer and frame counter), workqueue (single-flight worker), scratch
//     (output buffer pool and memory budget)
//
// # Thread Safety
//
// Device and Output methods are safe for concurrent use. Commits are
// serialized. The vblank timer and the composition worker run on their own
// goroutines; Close stops both and waits for them.
//
// # Logging
//
// vkms is silent by default. Call SetLogger to receive structured records
// from the pipeline and its internal packages.
package vkms
