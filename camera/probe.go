package camera

import "gocv.io/x/gocv"

// ListDevices probes device indexes 0..max-1 and returns the ones that open
// and deliver a frame.
func ListDevices(open Opener, max int) []int {
	var available []int

	frame := gocv.NewMat()
	defer frame.Close()

	for i := 0; i < max; i++ {
		if probeDevice(open, Descriptor{Index: i}, &frame) {
			available = append(available, i)
		}
	}
	return available
}

func probeDevice(open Opener, d Descriptor, frame *gocv.Mat) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	capture, err := open(d)
	if capture == nil {
		return false
	}
	defer capture.Close()
	if err != nil {
		return false
	}

	if !capture.IsOpened() {
		return false
	}
	return capture.Read(frame) && !frame.Empty()
}
