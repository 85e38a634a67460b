package proto

import "github.com/dls-controls/fa-archiver/errs"

// StatusCommand is one letter of a batched "C" status request (spec §4.6).
type StatusCommand byte

const (
	StatusFrameRate       StatusCommand = 'F'
	StatusFirstDecimation StatusCommand = 'd'
	StatusSecondDecimation StatusCommand = 'D'
	StatusEarliestTime    StatusCommand = 'T'
	StatusVersion         StatusCommand = 'V'
	StatusArchiveMask     StatusCommand = 'M'
	StatusLiveDecimation  StatusCommand = 'C'
	StatusSnifferStatus   StatusCommand = 'S'
	StatusClientList      StatusCommand = 'I'
)

// ParseStatusRequest decodes the request body following the leading "C"
// byte the server has already consumed, e.g. "FdDVMC" (spec §4.6, scenario
// 5): one StatusCommand per byte, order preserved since each reply line is
// emitted in request order.
func ParseStatusRequest(line string) ([]StatusCommand, error) {
	if line == "" {
		return nil, errs.ErrBadRequest
	}
	cmds := make([]StatusCommand, 0, len(line))
	for i := 0; i < len(line); i++ {
		c := StatusCommand(line[i])
		switch c {
		case StatusFrameRate, StatusFirstDecimation, StatusSecondDecimation,
			StatusEarliestTime, StatusVersion, StatusArchiveMask,
			StatusLiveDecimation, StatusSnifferStatus, StatusClientList:
			cmds = append(cmds, c)
		default:
			return nil, errs.ErrBadRequest
		}
	}
	return cmds, nil
}
