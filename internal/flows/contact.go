package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/queue"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

// validateContactID checks the registrar-chosen contact id against the
// protocol's clIDType: 3 to 16 characters.
func validateContactID(id string) error {
	if len(id) < 3 || len(id) > 16 {
		return epperr.New(epperr.CodeParameterValueSyntaxError,
			"Contact ids must be between 3 and 16 characters")
	}
	return nil
}

func postalInfoFromWire(wire *epp.ContactPostalInfo) model.PostalInfo {
	if wire == nil {
		return model.PostalInfo{}
	}
	return model.PostalInfo{
		Name:    wire.Name,
		Org:     wire.Org,
		Street:  wire.Addr.Street,
		City:    wire.Addr.City,
		Country: wire.Addr.Country,
	}
}

func postalInfoToWire(p model.PostalInfo) *epp.ContactPostalInfo {
	if p.Name == "" && p.Org == "" && len(p.Street) == 0 && p.City == "" && p.Country == "" {
		return nil
	}
	return &epp.ContactPostalInfo{
		Name: p.Name,
		Org:  p.Org,
		Addr: epp.ContactAddr{Street: p.Street, City: p.City, Country: p.Country},
	}
}

type contactCreateFlow struct{}

func (contactCreateFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *contactCreateFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	cmd := fc.Command.ContactCreate
	id := cmd.ID

	if err := validateContactID(id); err != nil {
		return nil, err
	}
	if err := verifyResourceDoesNotExist(ctx, fc.Tx, store.KindContact, id, fc.Now); err != nil {
		return nil, err
	}
	contact := &model.Contact{
		ResourceBase: model.ResourceBase{
			RepoID:            fc.IDs.RepoID(DefaultRoidSuffix),
			ForeignKey:        id,
			CreationTime:      fc.Now,
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: fc.Registrar,
			SponsorRegistrar:  fc.Registrar,
		},
		PostalInfo: postalInfoFromWire(cmd.PostalInfo),
		Email:      cmd.Email,
		Phone:      cmd.Voice,
	}
	if err := saveContact(ctx, fc.Tx, contact); err != nil {
		return nil, err
	}
	if err := installForeignKey(ctx, fc.Tx, store.KindContact, id, contact.RepoID); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryContactCreate, contact.RepoID)); err != nil {
		return nil, err
	}
	return epp.Success(epperr.CodeSuccess, &epp.ContactCreateData{
		ID:           id,
		CreationDate: epp.Time(fc.Now),
	}), nil
}

var contactUpdateDisallowedStatuses = []model.StatusValue{
	model.StatusPendingDelete,
	model.StatusClientUpdateProhibited,
	model.StatusServerUpdateProhibited,
}

type contactUpdateFlow struct{}

func (contactUpdateFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *contactUpdateFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	cmd := fc.Command.ContactUpdate
	id := cmd.ID

	if err := validateContactID(id); err != nil {
		return nil, err
	}
	contact, err := loadContactByID(ctx, fc.Tx, id, fc.Now)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifyNoDisallowedStatuses(&contact.ResourceBase, contactUpdateDisallowedStatuses...); err != nil {
			return nil, err
		}
		if err := verifyResourceOwnership(fc.Registrar, contact.SponsorRegistrar); err != nil {
			return nil, err
		}
	}
	addStatuses, remStatuses, err := parseStatusChanges(contactStatusesOf(cmd.Add), contactStatusesOf(cmd.Remove), fc.Superuser)
	if err != nil {
		return nil, err
	}
	for _, s := range remStatuses {
		contact.RemoveStatus(s)
	}
	for _, s := range addStatuses {
		contact.AddStatus(s)
	}
	if chg := cmd.Change; chg != nil {
		if chg.PostalInfo != nil {
			contact.PostalInfo = postalInfoFromWire(chg.PostalInfo)
		}
		if chg.Email != "" {
			contact.Email = chg.Email
		}
		if chg.Voice != "" {
			contact.Phone = chg.Voice
		}
	}
	contact.LastUpdateTime = fc.Now
	contact.LastUpdateRegistrar = fc.Registrar

	if err := saveContact(ctx, fc.Tx, contact); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryContactUpdate, contact.RepoID)); err != nil {
		return nil, err
	}
	return epp.Success(epperr.CodeSuccess, nil), nil
}

var contactDeleteDisallowedStatuses = []model.StatusValue{
	model.StatusPendingDelete,
	model.StatusClientDeleteProhibited,
	model.StatusServerDeleteProhibited,
}

// contactDeleteFlow deletes a contact asynchronously; the worker scans for
// domains still referencing it before the deletion becomes real.
type contactDeleteFlow struct{}

func (contactDeleteFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *contactDeleteFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	id := fc.Command.ContactDelete.ID

	if err := validateContactID(id); err != nil {
		return nil, err
	}
	referenced, err := domainsReferencingContact(ctx, fc.Tx, id, fc)
	if err != nil {
		return nil, err
	}
	if referenced {
		return nil, epperr.New(epperr.CodeAssociationProhibitsOp,
			"Resource to be deleted is referenced by another resource")
	}
	contact, err := loadContactByID(ctx, fc.Tx, id, fc.Now)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifyNoDisallowedStatuses(&contact.ResourceBase, contactDeleteDisallowedStatuses...); err != nil {
			return nil, err
		}
		if err := verifyResourceOwnership(fc.Registrar, contact.SponsorRegistrar); err != nil {
			return nil, err
		}
	}

	contact.AddStatus(model.StatusPendingDelete)
	if err := saveContact(ctx, fc.Tx, contact); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryContactPendingDelete, contact.RepoID)); err != nil {
		return nil, err
	}
	fc.EnqueueDeletion(queue.DeletionTask{
		ResourceKind:        string(store.KindContact),
		ResourceRepoID:      contact.RepoID,
		RequestingRegistrar: fc.Registrar,
		ClientTrid:          fc.Command.ClTRID,
		ServerTrid:          fc.SvTRID,
		Superuser:           fc.Superuser,
		RequestTime:         fc.Now,
	})
	return epp.Success(epperr.CodeSuccessActionPending, nil), nil
}

// domainsReferencingContact reports whether any active domain references the
// contact id as registrant or designated contact.
func domainsReferencingContact(ctx context.Context, tx store.Tx, id string, fc *Context) (bool, error) {
	ents, err := tx.Query(ctx, store.KindDomain, func(ent *store.Entity) bool {
		domain, err := store.Decode[model.Domain](ent)
		if err != nil {
			return false
		}
		if !domain.ActiveAt(fc.Now) {
			return false
		}
		if domain.Registrant == id {
			return true
		}
		for _, c := range domain.Contacts {
			if c.ContactID == id {
				return true
			}
		}
		return false
	})
	if err != nil {
		return false, err
	}
	return len(ents) > 0, nil
}

func contactStatusesOf(ar *epp.ContactAddRemove) []epp.StatusElem {
	if ar == nil {
		return nil
	}
	return ar.Statuses
}

type contactInfoFlow struct{}

func (contactInfoFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true}
}

func (f *contactInfoFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	id := fc.Command.ContactInfo.ID

	if err := validateContactID(id); err != nil {
		return nil, err
	}
	contact, err := loadContactByID(ctx, fc.Tx, id, fc.Now)
	if err != nil {
		return nil, err
	}
	linked, err := domainsReferencingContact(ctx, fc.Tx, id, fc)
	if err != nil {
		return nil, err
	}
	statuses := wireStatuses(&contact.ResourceBase)
	if linked {
		statuses = append(statuses, epp.StatusElem{Value: string(model.StatusLinked)})
	}
	return epp.Success(epperr.CodeSuccess, &epp.ContactInfoData{
		ID:                contact.ForeignKey,
		RepoID:            contact.RepoID,
		Statuses:          statuses,
		PostalInfo:        postalInfoToWire(contact.PostalInfo),
		Voice:             contact.Phone,
		Email:             contact.Email,
		SponsorRegistrar:  contact.SponsorRegistrar,
		CreationRegistrar: contact.CreationRegistrar,
		CreationDate:      epp.Time(contact.CreationTime),
		UpdateRegistrar:   contact.LastUpdateRegistrar,
		UpdateDate:        epp.OptTime(contact.LastUpdateTime),
		TransferDate:      epp.OptTime(contact.LastTransferTime),
	}), nil
}

type contactCheckFlow struct{}

func (contactCheckFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true}
}

func (f *contactCheckFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	ids := fc.Command.ContactCheck.IDs

	if err := verifyCheckCount(len(ids)); err != nil {
		return nil, err
	}
	results := make([]epp.CheckResult, 0, len(ids))
	for _, id := range ids {
		if err := validateContactID(id); err != nil {
			return nil, err
		}
		_, taken, err := activeRepoID(ctx, fc.Tx, store.KindContact, id, fc.Now)
		if err != nil {
			return nil, err
		}
		result := epp.CheckResult{Name: epp.CheckName{Available: !taken, Value: id}}
		if taken {
			result.Reason = "In use"
		}
		results = append(results, result)
	}
	return epp.Success(epperr.CodeSuccess, epp.NewContactCheckData(results)), nil
}
