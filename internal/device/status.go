package device

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// serialBase is the first value of the serial transport statuses shared by
// every status family.
const serialBase = 100

// Status is the outcome of a non-streaming gateway operation.
type Status int

const (
	StatusOk Status = iota
	StatusError
	StatusSerialError
	StatusSecurityError
	StatusVersionMismatch
	StatusCrcError
)

var statusNames = [...]string{"Ok", "Error", "SerialError", "SecurityError", "VersionMismatch", "CrcError"}

func (s Status) String() string { return enumName(statusNames[:], int(s), "Status") }

// Text returns a human readable description.
func (s Status) Text() string { return Humanize(s.String()) }

// OK reports whether the operation succeeded.
func (s Status) OK() bool { return s == StatusOk }

// EnrollStatus is reported through enroll hint and result callbacks.
type EnrollStatus int

const (
	EnrollSuccess EnrollStatus = iota
	EnrollBadFrameQuality
	EnrollNoFaceDetected
	EnrollFaceDetected
	EnrollLedFlowSuccess
	EnrollFaceIsTooFarToTheTop
	EnrollFaceIsTooFarToTheBottom
	EnrollFaceIsTooFarToTheRight
	EnrollFaceIsTooFarToTheLeft
	EnrollFaceTiltIsTooUp
	EnrollFaceTiltIsTooDown
	EnrollFaceTiltIsTooRight
	EnrollFaceTiltIsTooLeft
	EnrollFaceIsNotFrontal
	EnrollFaceIsTooFarFromTheCamera
	EnrollFaceIsTooCloseToTheCamera
	EnrollCameraStarted
	EnrollCameraStopped
	EnrollMultipleFacesDetected
	EnrollFailure
	EnrollDeviceError
)

const (
	EnrollSerialOk EnrollStatus = serialBase + iota
	EnrollSerialError
	EnrollSerialSecurityError
)

var enrollNames = [...]string{
	"Success", "BadFrameQuality", "NoFaceDetected", "FaceDetected", "LedFlowSuccess",
	"FaceIsTooFarToTheTop", "FaceIsTooFarToTheBottom", "FaceIsTooFarToTheRight", "FaceIsTooFarToTheLeft",
	"FaceTiltIsTooUp", "FaceTiltIsTooDown", "FaceTiltIsTooRight", "FaceTiltIsTooLeft",
	"FaceIsNotFrontal", "FaceIsTooFarFromTheCamera", "FaceIsTooCloseToTheCamera",
	"CameraStarted", "CameraStopped", "MultipleFacesDetected", "Failure", "DeviceError",
}

var serialNames = [...]string{"SerialOk", "SerialError", "SerialSecurityError"}

func (s EnrollStatus) String() string {
	if s >= serialBase {
		return enumName(serialNames[:], int(s)-serialBase, "EnrollStatus")
	}
	return enumName(enrollNames[:], int(s), "EnrollStatus")
}

// Text returns a human readable description.
func (s EnrollStatus) Text() string { return Humanize(s.String()) }

// Success reports whether the enrollment completed.
func (s EnrollStatus) Success() bool { return s == EnrollSuccess }

// SerialFailure reports a transport level failure rather than a biometric one.
func (s EnrollStatus) SerialFailure() bool { return s > EnrollSerialOk }

// AuthStatus is reported through authentication hint and result callbacks.
type AuthStatus int

const (
	AuthSuccess AuthStatus = iota
	AuthNoFaceDetected
	AuthFaceDetected
	AuthLedFlowSuccess
	AuthFaceIsTooFarToTheTop
	AuthFaceIsTooFarToTheBottom
	AuthFaceIsTooFarToTheRight
	AuthFaceIsTooFarToTheLeft
	AuthFaceTiltIsTooUp
	AuthFaceTiltIsTooDown
	AuthFaceTiltIsTooRight
	AuthFaceTiltIsTooLeft
	AuthCameraStarted
	AuthCameraStopped
	AuthMaskDetectedInHighSecurity
	AuthSpoof
	AuthForbidden
	AuthDeviceError
	AuthFailure
)

const (
	AuthSerialOk AuthStatus = serialBase + iota
	AuthSerialError
	AuthSerialSecurityError
)

var authNames = [...]string{
	"Success", "NoFaceDetected", "FaceDetected", "LedFlowSuccess",
	"FaceIsTooFarToTheTop", "FaceIsTooFarToTheBottom", "FaceIsTooFarToTheRight", "FaceIsTooFarToTheLeft",
	"FaceTiltIsTooUp", "FaceTiltIsTooDown", "FaceTiltIsTooRight", "FaceTiltIsTooLeft",
	"CameraStarted", "CameraStopped", "MaskDetectedInHighSecurity", "Spoof", "Forbidden",
	"DeviceError", "Failure",
}

func (s AuthStatus) String() string {
	if s >= serialBase {
		return enumName(serialNames[:], int(s)-serialBase, "AuthStatus")
	}
	return enumName(authNames[:], int(s), "AuthStatus")
}

// Text returns a human readable description.
func (s AuthStatus) Text() string { return Humanize(s.String()) }

// Success reports whether authentication succeeded.
func (s AuthStatus) Success() bool { return s == AuthSuccess }

// SerialFailure reports a transport level failure rather than a biometric one.
func (s AuthStatus) SerialFailure() bool { return s > AuthSerialOk }

// FacePose is reported through the enroll progress callback.
type FacePose int

const (
	PoseCenter FacePose = iota
	PoseUp
	PoseDown
	PoseLeft
	PoseRight
)

var poseNames = [...]string{"Center", "Up", "Down", "Left", "Right"}

// PoseCount is the number of poses a full enrollment captures.
const PoseCount = len(poseNames)

func (p FacePose) String() string { return enumName(poseNames[:], int(p), "FacePose") }

// SecurityLevel selects the authentication strictness.
type SecurityLevel int

const (
	SecurityHigh SecurityLevel = iota
	SecurityMedium
)

func (l SecurityLevel) String() string {
	return enumName([]string{"High", "Medium"}, int(l), "SecurityLevel")
}

// ParseSecurityLevel accepts "high" or "medium" in any case.
func ParseSecurityLevel(value string) (SecurityLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return SecurityHigh, true
	case "medium":
		return SecurityMedium, true
	default:
		return 0, false
	}
}

// CameraRotation describes how the module is mounted.
type CameraRotation int

const (
	Rotation0 CameraRotation = iota
	Rotation180
)

func (r CameraRotation) String() string {
	return enumName([]string{"Rotation 0 Deg", "Rotation 180 Deg"}, int(r), "CameraRotation")
}

// ParseCameraRotation accepts 0 or 180.
func ParseCameraRotation(value string) (CameraRotation, bool) {
	switch strings.TrimSpace(value) {
	case "0":
		return Rotation0, true
	case "180":
		return Rotation180, true
	default:
		return 0, false
	}
}

// AuthConfig holds device-side authentication settings.
type AuthConfig struct {
	SecurityLevel  SecurityLevel  `json:"security_level" yaml:"security_level"`
	CameraRotation CameraRotation `json:"camera_rotation" yaml:"camera_rotation"`
}

func enumName(names []string, idx int, family string) string {
	if idx >= 0 && idx < len(names) {
		return names[idx]
	}
	return family + "(" + strconv.Itoa(idx) + ")"
}

var (
	titleCaser = cases.Title(language.English)
	lowerCaser = cases.Lower(language.English)
)

// Humanize turns a CamelCase status name into a sentence, e.g.
// "FaceIsTooFarToTheTop" becomes "Face is too far to the top".
func Humanize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var words []string
	var current []rune
	runes := []rune(name)
	for i, r := range runes {
		boundary := i > 0 && unicode.IsUpper(r) &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1])))
		if boundary || r == '_' || r == ' ' {
			if len(current) > 0 {
				words = append(words, string(current))
			}
			current = current[:0]
			if r == '_' || r == ' ' {
				continue
			}
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	for i, w := range words {
		if i == 0 {
			words[i] = titleCaser.String(w)
			continue
		}
		if isAcronym(w) {
			continue
		}
		words[i] = lowerCaser.String(w)
	}
	return strings.Join(words, " ")
}

func isAcronym(word string) bool {
	if len(word) < 2 {
		return false
	}
	for _, r := range word {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
