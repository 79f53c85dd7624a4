package codec

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/audio"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// EVS drives the 3GPP reference tools, which only read and write headerless PCM.
//
//	wav -> in.raw (int16 LE)
//	EVS_cod [-mime] -q [-max_band <b>] <bps> <fs_khz> in.raw frames.192
//	EVS_dec [-mime] -q <fs_khz> frames.192 out.raw
//	out.raw -> wav
//
// Framing is pinned per configuration (g192 unless "framing: mime") and checked on
// the bitstream the encoder wrote. All intermediates are removed on every path.
type EVS struct {
	name    string
	env     Env
	encoder string
	decoder string
	framing Framing
	maxBand string
}

var evsRates = map[uint32]bool{8000: true, 16000: true, 32000: true, 48000: true}

// NewEVS builds an EVS adapter. Params: bin_dir (directory with EVS_cod and EVS_dec),
// framing (g192 or mime), max_band (NB, WB, SWB or FB, optional).
func NewEVS(name string, env Env, params Params) (Adapter, error) {
	env = env.withDefaults()
	framing, err := parseFraming(params.String("framing", ""))
	if err != nil {
		return nil, models.NewError(models.KindConfiguration, name, err)
	}
	a := &EVS{name: name, env: env, framing: framing, maxBand: params.String("max_band", "")}
	switch a.maxBand {
	case "", "NB", "WB", "SWB", "FB":
	default:
		return nil, models.Errorf(models.KindConfiguration, name, "max_band %q not one of NB, WB, SWB, FB", a.maxBand)
	}

	enc, dec := "EVS_cod", "EVS_dec"
	if dir := params.String("bin_dir", ""); dir != "" {
		enc, dec = filepath.Join(dir, enc), filepath.Join(dir, dec)
	}
	if a.encoder, err = env.resolve(enc); err != nil {
		return nil, err
	}
	if a.decoder, err = env.resolve(dec); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *EVS) Name() string { return a.name }

func (a *EVS) modeArgs() []string {
	if a.framing == FramingMIME {
		return []string{"-mime", "-q"}
	}
	return []string{"-q"}
}

func (a *EVS) Apply(ctx context.Context, input, output string, bitrate int) (Result, error) {
	info, err := checkInput(a.name, input)
	if err != nil {
		return Result{}, err
	}
	if info.BitsPerSample != 16 {
		return Result{}, models.Errorf(models.KindFormatConversion, a.name, "needs 16-bit input, got %d-bit", info.BitsPerSample)
	}
	if !evsRates[info.SampleRate] {
		return Result{}, models.Errorf(models.KindFormatConversion, a.name, "sample rate %d not one of 8, 16, 32, 48 kHz", info.SampleRate)
	}
	fsKHz := strconv.Itoa(int(info.SampleRate / 1000))

	work, err := os.MkdirTemp(a.env.TempDir, "evs-*")
	if err != nil {
		return Result{}, models.NewError(models.KindExternalTool, a.name, err)
	}
	defer os.RemoveAll(work)

	rawIn := filepath.Join(work, "in.raw")
	bitstream := filepath.Join(work, "frames.192")
	rawOut := filepath.Join(work, "out.raw")
	tmp := output + ".tmp.wav"
	defer os.Remove(tmp)

	format, err := audio.WavToRaw16(input, rawIn)
	if err != nil {
		return Result{}, models.NewError(models.KindFormatConversion, a.name, err)
	}

	var res Result
	encArgs := a.modeArgs()
	if a.maxBand != "" {
		encArgs = append(encArgs, "-max_band", a.maxBand)
	}
	encArgs = append(encArgs, strconv.Itoa(bitrate), fsKHz, rawIn, bitstream)
	log, err := a.env.Runner.Run(ctx, runner.Cmd{Name: a.encoder, Args: encArgs}, nil)
	res.Logs = append(res.Logs, log)
	if err != nil {
		return res, toolError(ctx, a.name, res.Logs, err)
	}
	if err := expectFraming(bitstream, a.framing); err != nil {
		return res, models.Errorf(models.KindExternalTool, a.name, "encoder output: %v", err)
	}

	decArgs := append(a.modeArgs(), fsKHz, bitstream, rawOut)
	log, err = a.env.Runner.Run(ctx, runner.Cmd{Name: a.decoder, Args: decArgs}, nil)
	res.Logs = append(res.Logs, log)
	if err != nil {
		return res, toolError(ctx, a.name, res.Logs, err)
	}

	if err := audio.RawToWav16(rawOut, tmp, format); err != nil {
		return res, models.NewError(models.KindFormatConversion, a.name, err)
	}

	res.Duration, err = commit(ctx, a.name, tmp, output)
	return res, err
}
