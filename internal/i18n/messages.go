// Package i18n holds the user-facing message catalog in English and Indonesian.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a catalog message.
type Key string

const (
	GenerationStarted    Key = "generation.started"
	GenerationSucceeded  Key = "generation.succeeded"
	GenerationAborted    Key = "generation.aborted"
	GenerationOverloaded Key = "generation.overloaded"
	GenerationFailed     Key = "generation.failed"
	GenerationBusy       Key = "generation.busy"
	FormIncomplete       Key = "form.incomplete"
	ImageUnsupported     Key = "image.unsupported"
	ImageProcessFailed   Key = "image.process_failed"
	ImageTooLarge        Key = "image.too_large"
	ImageAccepted        Key = "image.accepted"
	StyleUnknown         Key = "style.unknown"
	HistoryNotFound      Key = "history.not_found"
	HistoryRestored      Key = "history.restored"
	HistoryCleared       Key = "history.cleared"
	AbortRequested       Key = "abort.requested"
	AbortIdle            Key = "abort.idle"
	RequestInvalid       Key = "request.invalid"
	ClientInvalid        Key = "client.invalid"
	RateLimited          Key = "request.rate_limited"
	Internal             Key = "internal"
	ShuttingDown         Key = "server.shutting_down"
)

var entries = map[Key]map[language.Tag]string{
	GenerationStarted: {
		language.English:    "Generating your image.",
		language.Indonesian: "Gambar sedang dibuat.",
	},
	GenerationSucceeded: {
		language.English:    "Your image is ready.",
		language.Indonesian: "Gambar kamu sudah siap.",
	},
	GenerationAborted: {
		language.English:    "Generation cancelled.",
		language.Indonesian: "Pembuatan gambar dibatalkan.",
	},
	GenerationOverloaded: {
		language.English:    "The model is overloaded. Please try again in a moment.",
		language.Indonesian: "Model sedang sibuk. Silakan coba lagi sebentar lagi.",
	},
	GenerationFailed: {
		language.English:    "Failed to generate image.",
		language.Indonesian: "Gagal membuat gambar.",
	},
	GenerationBusy: {
		language.English:    "A generation is already running.",
		language.Indonesian: "Pembuatan gambar masih berjalan.",
	},
	FormIncomplete: {
		language.English:    "Please provide an image, prompt, and style.",
		language.Indonesian: "Harap sertakan gambar, prompt, dan gaya.",
	},
	ImageUnsupported: {
		language.English:    "Please upload a PNG or JPG image",
		language.Indonesian: "Silakan unggah gambar PNG atau JPG",
	},
	ImageProcessFailed: {
		language.English:    "Failed to process image",
		language.Indonesian: "Gagal memproses gambar",
	},
	ImageTooLarge: {
		language.English:    "Image is larger than %d MB and may take longer to process.",
		language.Indonesian: "Ukuran gambar lebih dari %d MB dan mungkin butuh waktu lebih lama untuk diproses.",
	},
	ImageAccepted: {
		language.English:    "Image ready.",
		language.Indonesian: "Gambar siap.",
	},
	StyleUnknown: {
		language.English:    "Unknown style %q.",
		language.Indonesian: "Gaya %q tidak dikenal.",
	},
	HistoryNotFound: {
		language.English:    "That history entry no longer exists.",
		language.Indonesian: "Riwayat tersebut sudah tidak ada.",
	},
	HistoryRestored: {
		language.English:    "Restored from history.",
		language.Indonesian: "Dipulihkan dari riwayat.",
	},
	HistoryCleared: {
		language.English:    "History cleared.",
		language.Indonesian: "Riwayat dihapus.",
	},
	AbortRequested: {
		language.English:    "Cancelling generation.",
		language.Indonesian: "Membatalkan pembuatan gambar.",
	},
	AbortIdle: {
		language.English:    "No generation is running.",
		language.Indonesian: "Tidak ada pembuatan gambar yang berjalan.",
	},
	RequestInvalid: {
		language.English:    "The request could not be read.",
		language.Indonesian: "Permintaan tidak dapat dibaca.",
	},
	ClientInvalid: {
		language.English:    "Invalid client id.",
		language.Indonesian: "ID klien tidak valid.",
	},
	RateLimited: {
		language.English:    "Too many requests. Please slow down.",
		language.Indonesian: "Terlalu banyak permintaan. Mohon tunggu sebentar.",
	},
	Internal: {
		language.English:    "Something went wrong.",
		language.Indonesian: "Terjadi kesalahan.",
	},
	ShuttingDown: {
		language.English:    "The server is shutting down. Please try again shortly.",
		language.Indonesian: "Server sedang dimatikan. Silakan coba lagi sebentar lagi.",
	},
}

var (
	cat     = buildCatalog()
	matcher = language.NewMatcher([]language.Tag{language.English, language.Indonesian})
)

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, translations := range entries {
		for tag, msg := range translations {
			if err := b.SetString(tag, string(key), msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Printer returns a printer for the supported locale closest to locale.
func Printer(locale string) *message.Printer {
	tag, _ := language.MatchStrings(matcher, locale)
	base, _ := tag.Base()
	return message.NewPrinter(language.Make(base.String()), message.Catalog(cat))
}

// T formats the message for key in locale.
func T(locale string, key Key, args ...any) string {
	return Printer(locale).Sprintf(string(key), args...)
}
