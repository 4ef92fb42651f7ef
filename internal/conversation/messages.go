package conversation

import (
	"fmt"
	"strings"

	"github.com/valenrosasc/chatbot/internal/models"
)

// Content is the office-specific text shown in the menu and info option.
type Content struct {
	OfficeName string
	Address    string
	Hours      string
	Phone      string
	Keywords   []string
}

const (
	msgWelcome       = "🙌 ¡Bienvenido al sistema de citas! Estas son las opciones disponibles:"
	msgNotUnderstood = "🤔 No entendí tu mensaje. Estas son las opciones disponibles:"
	msgMenuOptions   = "*1* - Agendar una cita.\n*2* - Consultar mis citas.\n*3* - Información del consultorio.\n*4* - Cancelar una cita."
	msgBackToMenu    = "Volviendo al menú principal..."
	msgMenuHint      = "Escribe *menu* para ver las opciones nuevamente."

	msgAskPersonID      = "Por favor, escribe tu número de cédula (solo números):"
	msgInvalidPersonID  = "⚠️ La cédula debe contener solo números. Intenta nuevamente."
	msgPersonIDSaved    = "✅ Cédula registrada correctamente."
	msgAskFullName      = "Por favor, escribe tu nombre completo:"
	msgFullNameSaved    = "✅ Nombre registrado correctamente."
	msgInvalidFullName  = "⚠️ El nombre no puede estar vacío. Intenta nuevamente."
	msgAskPhone         = "Por favor, escribe tu número de celular (solo números):"
	msgInvalidPhone     = "⚠️ El celular debe contener solo números. Intenta nuevamente."
	msgInvalidOption    = "⚠️ Opción inválida. Por favor, selecciona un número válido."
	msgWeekdaysOnly     = "Recuerda que la atención está disponible únicamente de lunes a viernes."
	msgBookingError     = "⚠️ Hubo un error al agendar la cita. Intenta nuevamente."
	msgSomethingWrong   = "⚠️ Algo salió mal. Por favor, vuelve a intentarlo desde el principio."
	msgGenericTryAgain  = "⚠️ Ocurrió un error inesperado. Por favor, intenta nuevamente más tarde."
	msgAskListPersonID  = "Por favor, escribe tu número de cédula para consultar tus citas:"
	msgNoAppointments   = "No tienes citas agendadas."
	msgLookupError      = "⚠️ No pudimos consultar tus citas. Intenta nuevamente."
	msgAskCancelID      = "Por favor, escribe tu número de cédula para cancelar tu cita:"
	msgNoCancelMatches  = "⚠️ No tienes citas agendadas con esa cédula."
	msgInvalidYesNo     = "⚠️ Respuesta inválida. Por favor, responde *SI* o *NO*."
	msgCancelError      = "⚠️ Hubo un error al cancelar la cita. Intenta nuevamente."
	msgAlreadyCancelled = "⚠️ La cita ya no existe o fue cancelada previamente."
)

func renderMenu(c Content) string {
	var b strings.Builder
	if c.OfficeName != "" {
		fmt.Fprintf(&b, "*%s*\n", c.OfficeName)
	}
	b.WriteString(msgWelcome)
	b.WriteString("\n")
	b.WriteString(msgMenuOptions)
	return b.String()
}

func renderNotUnderstood() string {
	return msgNotUnderstood + "\n" + msgMenuOptions
}

func renderInfo(c Content) string {
	return fmt.Sprintf("📍 Dirección: %s\n🕒 Horarios: %s\n📞 Teléfono: %s\n\n%s", c.Address, c.Hours, c.Phone, msgMenuHint)
}

func renderDates(dates []string) string {
	var b strings.Builder
	b.WriteString("📅 Selecciona la fecha de tu cita (escribe el número):\n")
	for i, d := range dates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d)
	}
	b.WriteString("0. Volver al menú principal\n")
	b.WriteString(msgWeekdaysOnly)
	return b.String()
}

func renderTimes(date string, slots []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Fecha seleccionada: %s\n🕒 Selecciona la hora de tu cita (escribe el número):\n", date)
	for i, s := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("0. Volver al menú principal")
	return b.String()
}

func renderSlotTaken(a models.Appointment) string {
	return fmt.Sprintf("⚠️ La hora %s del %s ya está ocupada.", a.TimeSlot, a.Date)
}

func renderDailyLimit(a models.Appointment, limit int) string {
	return fmt.Sprintf("⚠️ Ya tienes %s citas agendadas para la fecha %s.", countWord(limit), a.Date)
}

func renderBooked(a models.Appointment) string {
	return fmt.Sprintf("✅ Cita agendada para la fecha %s a las %s.", a.Date, a.TimeSlot)
}

func renderListing(personID string, appts []models.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Citas agendadas para la cédula %s:", personID)
	for _, a := range appts {
		fmt.Fprintf(&b, "\n- %s: %s", a.Date, a.TimeSlot)
	}
	return b.String()
}

func renderCancelChoices(appts []models.Appointment) string {
	var b strings.Builder
	b.WriteString("Estas son tus citas agendadas. Escribe el número de la cita que deseas cancelar:\n")
	for i, a := range appts {
		fmt.Fprintf(&b, "%d. Fecha: %s, Hora: %s\n", i+1, a.Date, a.TimeSlot)
	}
	b.WriteString("0. Volver al menú principal")
	return b.String()
}

func renderConfirmCancel(a models.Appointment) string {
	return fmt.Sprintf("¿Estás seguro de que deseas cancelar la cita del %s a las %s? Responde *SI* para confirmar o *NO* para volver al menú.", a.Date, a.TimeSlot)
}

func renderCancelled(a models.Appointment) string {
	return fmt.Sprintf("✅ La cita del %s a las %s ha sido cancelada.", a.Date, a.TimeSlot)
}

func countWord(n int) string {
	switch n {
	case 1:
		return "una"
	case 2:
		return "dos"
	case 3:
		return "tres"
	default:
		return fmt.Sprint(n)
	}
}
