package ffmpeg

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	Path       string
	Duration   float64
	Width      int
	Height     int
	FPS        float64
	Bitrate    int64
	HasVideo   bool
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame      int
	FPS        float64
	OutTime    float64
	Speed      string
	Percentage float64
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args []string
	// Duration of the expected output, used to compute percentages.
	Duration        float64
	ProgressHandler func(Progress)
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultPreset      = "medium"
	DefaultVideoCodec  = "libx264"
	DefaultAudioCodec  = "aac"
	DefaultAudioRate   = 44100
	DefaultAudioBR     = "192k"
	DefaultPixelFormat = "yuv420p"
)

// Encoding holds the output settings shared by every encode.
type Encoding struct {
	Width       int
	Height      int
	FPS         int
	Bitrate     string
	VideoCodec  string
	AudioCodec  string
	Preset      string
	PixelFormat string
}

// OutputArgs returns the codec arguments for e, filling unset fields with
// the defaults above.
func (e Encoding) OutputArgs() []string {
	vcodec := orDefault(e.VideoCodec, DefaultVideoCodec)
	acodec := orDefault(e.AudioCodec, DefaultAudioCodec)
	args := []string{
		"-c:v", vcodec,
		"-preset", orDefault(e.Preset, DefaultPreset),
		"-pix_fmt", orDefault(e.PixelFormat, DefaultPixelFormat),
	}
	if e.Bitrate != "" {
		args = append(args, "-b:v", e.Bitrate)
	}
	if e.FPS > 0 {
		args = append(args, "-r", itoa(e.FPS))
	}
	args = append(args,
		"-c:a", acodec,
		"-b:a", DefaultAudioBR,
		"-ar", itoa(DefaultAudioRate),
		"-ac", "2",
		"-movflags", "+faststart",
	)
	return args
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
