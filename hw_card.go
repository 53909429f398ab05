package pcmio

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CardDevice is one PCM device of a card, listed per direction.
type CardDevice struct {
	Device      int
	Description string
	Playback    bool
}

// String returns a human-readable representation of the device.
func (d CardDevice) String() string {
	direction := "Capture"
	if d.Playback {
		direction = "Playback"
	}

	return fmt.Sprintf("  Device %d: %s [%s]", d.Device, d.Description, direction)
}

// Card is an enumerated sound card with its PCM devices.
type Card struct {
	Index       int
	ID          string
	Description string
	Devices     []CardDevice
}

// String returns a human-readable representation of the card.
func (c Card) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Card %d [%s]: %s\n", c.Index, c.ID, c.Description)
	for _, dev := range c.Devices {
		sb.WriteString(dev.String() + "\n")
	}

	return sb.String()
}

var (
	cardLineRe = regexp.MustCompile(`^\s*(\d+)\s+\[\s*([^]]*?)\s*\]:\s*(.*)`)
	pcmLineRe  = regexp.MustCompile(`^(\d+)-(\d+): (.*?) :.*`)
)

// Cards scans /proc/asound for the installed sound cards and their PCM
// devices.
func Cards() ([]Card, error) {
	cardsContent, err := os.ReadFile("/proc/asound/cards")
	if err != nil {
		return nil, fmt.Errorf("read card list: %w", err)
	}

	cardMap := make(map[int]*Card)
	for _, line := range strings.Split(string(cardsContent), "\n") {
		matches := cardLineRe.FindStringSubmatch(line)
		if len(matches) != 4 {
			continue
		}

		index, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		cardMap[index] = &Card{
			Index:       index,
			ID:          strings.TrimSpace(matches[2]),
			Description: strings.TrimSpace(matches[3]),
		}
	}

	pcmContent, err := os.ReadFile("/proc/asound/pcm")
	if err != nil {
		return nil, fmt.Errorf("read pcm list: %w", err)
	}

	for _, line := range strings.Split(string(pcmContent), "\n") {
		matches := pcmLineRe.FindStringSubmatch(line)
		if len(matches) < 4 {
			continue
		}

		cardIndex, _ := strconv.Atoi(matches[1])
		device, _ := strconv.Atoi(matches[2])

		card, ok := cardMap[cardIndex]
		if !ok {
			continue
		}

		description := strings.TrimSpace(matches[3])

		// One PCM device can carry both directions; list each direction
		// it actually has.
		if strings.Contains(line, "playback") {
			card.Devices = append(card.Devices, CardDevice{Device: device, Description: description, Playback: true})
		}

		if strings.Contains(line, "capture") {
			card.Devices = append(card.Devices, CardDevice{Device: device, Description: description})
		}
	}

	indexes := make([]int, 0, len(cardMap))
	for index := range cardMap {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	cards := make([]Card, 0, len(indexes))
	for _, index := range indexes {
		cards = append(cards, *cardMap[index])
	}

	return cards, nil
}

// CardIndex resolves a card ID to its index.
func CardIndex(id string) (int, error) {
	cards, err := Cards()
	if err != nil {
		return 0, err
	}

	for _, c := range cards {
		if c.ID == id {
			return c.Index, nil
		}
	}

	return 0, fmt.Errorf("no card named %s: %w", id, ErrNotFound)
}

// CardName reads the human name of a card from its control node.
func CardName(card int) (string, error) {
	path := fmt.Sprintf("/dev/snd/controlC%d", card)

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var info sndCtlCardInfo
	if err := ioctl(uintptr(fd), SNDRV_CTL_IOCTL_CARD_INFO, uintptr(unsafe.Pointer(&info))); err != nil {
		return "", fmt.Errorf("ioctl CARD_INFO failed: %w", err)
	}

	return cstr(info.Name[:]), nil
}
