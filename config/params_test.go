package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		Width: 32, AWidth: 32,
		NDRegs: 8, NARegs: 8, NPRegs: 8,
		NDTags: 4, NATags: 4, NPTags: 4,
		DataMemoryDepth: 64,
		WordBytes:       4,
		VlineBytes:      16,
		PageBytes:       64,
		JInL:            16,
		MaxSyncTags:     16,
		RSAluSlots:      4, RSLsuSlots: 4, RSPacketSendSlots: 2, RSPacketRecvSlots: 2, RSPredicateSlots: 2,
	}
}

func TestValidateAcceptsAWellFormedParams(t *testing.T) {
	require.NoError(t, validParams().Validate())
}

func TestValidateRejectsVlineNotMultipleOfWord(t *testing.T) {
	p := validParams()
	p.VlineBytes = 10
	require.Error(t, p.Validate())
}

func TestValidateRejectsPageNotMultipleOfVline(t *testing.T) {
	p := validParams()
	p.PageBytes = 20
	require.Error(t, p.Validate())
}

func TestValidateRejectsZeroRSSlots(t *testing.T) {
	p := validParams()
	p.RSAluSlots = 0
	require.Error(t, p.Validate())
}

func TestValidateRejectsNonPositiveMaxSyncTags(t *testing.T) {
	p := validParams()
	p.MaxSyncTags = 0
	require.Error(t, p.Validate())
}

func TestElementsPerVline(t *testing.T) {
	p := validParams()
	require.Equal(t, 4, p.ElementsPerVline(32), "16 bytes * 8 bits / 32-bit elements = 4")
}
